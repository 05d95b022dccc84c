package oauth2

import (
	"context"
	"errors"
	"strconv"

	ma "github.com/panyam/memberauth"
)

// KakaoUserInfoURL is Kakao's user profile endpoint
const KakaoUserInfoURL = "https://kapi.kakao.com/v2/user/me"

// KakaoProvider resolves Kakao access tokens through the user profile API
type KakaoProvider struct {
	BaseProvider

	// UserInfoURL defaults to KakaoUserInfoURL. Can be overridden for testing.
	UserInfoURL string

	// RequireVerifiedEmail rejects accounts whose email Kakao has not verified
	RequireVerifiedEmail bool
}

func NewKakaoProvider() *KakaoProvider {
	return &KakaoProvider{UserInfoURL: KakaoUserInfoURL, RequireVerifiedEmail: true}
}

type kakaoUser struct {
	ID           int64 `json:"id"`
	KakaoAccount struct {
		Email           string `json:"email"`
		IsEmailValid    *bool  `json:"is_email_valid"`
		IsEmailVerified *bool  `json:"is_email_verified"`
	} `json:"kakao_account"`
}

func (k *KakaoProvider) ExchangeToken(ctx context.Context, accessToken string) (*ma.ExternalIdentity, error) {
	if accessToken == "" {
		return nil, errEmptyAccessToken
	}

	var user kakaoUser
	if err := k.getJSON(ctx, accessToken, k.UserInfoURL, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("kakao profile has no id")
	}

	acct := user.KakaoAccount
	if acct.Email == "" {
		return nil, errors.New("kakao account has no email; request the account_email scope")
	}
	if acct.IsEmailValid != nil && !*acct.IsEmailValid {
		return nil, errors.New("kakao email is no longer valid")
	}
	if k.RequireVerifiedEmail && (acct.IsEmailVerified == nil || !*acct.IsEmailVerified) {
		return nil, errors.New("kakao email is not verified")
	}

	k.logger().Debug("resolved kakao identity", "kakao_id", user.ID)
	return &ma.ExternalIdentity{
		Provider:       ProviderKakao,
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          acct.Email,
	}, nil
}
