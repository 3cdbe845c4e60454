package provider

import (
	"fmt"
	"os"

	"github.com/papercomputeco/chatrelay/pkg/llm/provider/deepseek"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider/glm"
	"github.com/papercomputeco/chatrelay/pkg/llm/provider/siliconflow"
)

// Supported provider type constants
const (
	DeepSeek    = deepseek.Name
	GLM         = glm.Name
	SiliconFlow = siliconflow.Name
)

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{DeepSeek, GLM, SiliconFlow}
}

// New creates a new Provider instance for the given provider type.
// Returns an error if the provider type is not recognized.
func New(providerType string, opts Options) (Provider, error) {
	switch providerType {
	case DeepSeek:
		return deepseek.New(opts), nil
	case GLM:
		return glm.New(opts), nil
	case SiliconFlow:
		return siliconflow.New(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %q (supported: %v)", providerType, SupportedProviders())
	}
}

// CredentialEnv returns the environment variable holding the provider's API key.
func CredentialEnv(providerType string) (string, error) {
	switch providerType {
	case DeepSeek:
		return deepseek.APIKeyEnv, nil
	case GLM:
		return glm.APIKeyEnv, nil
	case SiliconFlow:
		return siliconflow.APIKeyEnv, nil
	default:
		return "", fmt.Errorf("unknown provider type: %q (supported: %v)", providerType, SupportedProviders())
	}
}

// LookupCredential reads the provider's API key from the environment.
// Returns ErrMissingCredential when it is unset or empty.
func LookupCredential(providerType string) (string, error) {
	env, err := CredentialEnv(providerType)
	if err != nil {
		return "", err
	}

	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingCredential, env)
	}
	return key, nil
}
