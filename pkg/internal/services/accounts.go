package services

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

// UserIDFromToken extracts the local account id from the session token.
// The token is decoded, not verified; verification is the auth backend's
// business and the id is only used to address signaling channels.
func UserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("unable to parse session token: %v", err)
	}

	if id, ok := claims["id"].(string); ok && len(id) > 0 {
		return id, nil
	}
	return "", fmt.Errorf("session token carries no account id")
}

// LoadSelfUser builds the local participant identity from settings.
func LoadSelfUser() (models.UserInfo, error) {
	var self models.UserInfo

	id, err := UserIDFromToken(viper.GetString("identity.token"))
	if err != nil {
		return self, err
	}

	name := viper.GetString("identity.name")
	self = models.UserInfo{
		ID:        id,
		Name:      name,
		Username:  strings.ToLower(name),
		Location:  viper.GetString("identity.location"),
		AvatarURL: viper.GetString("identity.avatar"),
	}
	return self, nil
}
