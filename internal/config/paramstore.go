package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal Parameter Store surface needed here. *ssm.Client
// satisfies it; tests substitute a fake.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParamStore resolves provider API keys from AWS SSM Parameter Store when
// LINGO_SECRET_SOURCE=ssm, so production hosts carry no provider keys in
// their environment.
type ParamStore struct {
	api    ssmAPI
	prefix string
}

func NewParamStore(ctx context.Context, prefix string) (*ParamStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &ParamStore{api: ssm.NewFromConfig(awsCfg), prefix: prefix}, nil
}

func NewParamStoreWithAPI(api ssmAPI, prefix string) *ParamStore {
	return &ParamStore{api: api, prefix: prefix}
}

func (p *ParamStore) Get(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}
	full := p.prefix + "/" + name
	withDecryption := true
	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &full,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", full, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// ResolveSecrets fills any empty provider key on cfg from Parameter Store.
// Keys already present in the environment win.
func (p *ParamStore) ResolveSecrets(ctx context.Context, cfg *Config) error {
	targets := []struct {
		name string
		dst  *string
	}{
		{"deepgram_api_key", &cfg.DeepgramAPIKey},
		{"openai_api_key", &cfg.OpenAIAPIKey},
		{"anthropic_api_key", &cfg.AnthropicAPIKey},
		{"elevenlabs_api_key", &cfg.ElevenLabsAPIKey},
	}
	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		v, err := p.Get(ctx, t.name)
		if err != nil {
			return err
		}
		*t.dst = v
	}
	return nil
}
