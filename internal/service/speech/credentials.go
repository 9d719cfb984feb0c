package speech

import (
	"fmt"
	"strings"

	speechmodel "github.com/zhouzirui/parley/backend/internal/model/speech"
)

// resolveCredentials returns the Volcengine app key and access token, falling
// back to the legacy API key field.
func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("volcengine speech config is nil")
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}

	if appID == "" || token == "" {
		return "", "", fmt.Errorf("volcengine speech config requires AppID and AccessToken")
	}

	return appID, token, nil
}
