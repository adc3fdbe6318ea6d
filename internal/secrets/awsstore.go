package secrets

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"racing-gateway/internal/common/errors"
	"racing-gateway/internal/common/logging"
)

// secretsManagerAPI is the slice of the Secrets Manager client we use,
// extracted so tests can substitute a fake.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSStoreConfig configures the Secrets Manager backed credential store.
type AWSStoreConfig struct {
	SecretName string
	Region     string
	// AccessKeyID/SecretAccessKey override the default credential chain
	// when both are set (useful outside AWS-managed environments).
	AccessKeyID     string
	SecretAccessKey string
}

// AWSStore fetches the credential blob from AWS Secrets Manager.
type AWSStore struct {
	client     secretsManagerAPI
	secretName string
	logger     logging.Logger
}

// NewAWSStore builds a Secrets Manager client from the default AWS
// configuration chain and wraps it as a credential Store.
func NewAWSStore(ctx context.Context, cfg AWSStoreConfig, logger logging.Logger) (*AWSStore, error) {
	if cfg.SecretName == "" {
		return nil, errors.CredentialError("secret name is required", nil)
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(loadCtx, opts...)
	if err != nil {
		return nil, errors.CredentialError("failed to load AWS configuration", err)
	}

	return &AWSStore{
		client:     secretsmanager.NewFromConfig(awsCfg),
		secretName: cfg.SecretName,
		logger:     logger,
	}, nil
}

func (s *AWSStore) Fetch(ctx context.Context) (*Credential, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretName),
	})
	if err != nil {
		return nil, errors.CredentialError("failed to retrieve secret", err).
			WithContext("secret_name", s.secretName)
	}

	if out.SecretString == nil {
		return nil, errors.CredentialError("secret has no string payload", nil).
			WithContext("secret_name", s.secretName)
	}

	credential, err := parseCredential([]byte(*out.SecretString))
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Retrieved OAuth credential from Secrets Manager",
		logging.Field{Key: "secret_name", Value: s.secretName},
		logging.Field{Key: "username", Value: credential.Username},
	)
	return credential, nil
}
