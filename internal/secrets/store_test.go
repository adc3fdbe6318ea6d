package secrets

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racing-gateway/internal/common/errors"
	"racing-gateway/internal/common/logging"
)

type fakeSecretsManager struct {
	payload *string
	err     error
	calls   int
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.payload}, nil
}

func newFakeAWSStore(fake *fakeSecretsManager) *AWSStore {
	return &AWSStore{
		client:     fake,
		secretName: "racing-oauth-credentials",
		logger:     logging.NewDefaultLogger(),
	}
}

func TestAWSStore_Fetch(t *testing.T) {
	payload := `{"client_id":"cid","client_secret":"cs","username":"driver@example.com","password":"pw"}`
	s := newFakeAWSStore(&fakeSecretsManager{payload: aws.String(payload)})

	credential, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cid", credential.ClientID)
	assert.Equal(t, "driver@example.com", credential.Username)
}

func TestAWSStore_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeSecretsManager
	}{
		{
			name: "retrieval failure",
			fake: &fakeSecretsManager{err: fmt.Errorf("access denied")},
		},
		{
			name: "no string payload",
			fake: &fakeSecretsManager{},
		},
		{
			name: "malformed JSON",
			fake: &fakeSecretsManager{payload: aws.String("not-json")},
		},
		{
			name: "missing required field",
			fake: &fakeSecretsManager{payload: aws.String(`{"client_id":"cid","username":"u","password":"p"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeAWSStore(tt.fake)
			_, err := s.Fetch(context.Background())
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeCredential))
		})
	}
}

func TestNewAWSStore_RequiresName(t *testing.T) {
	_, err := NewAWSStore(context.Background(), AWSStoreConfig{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCredential))
}

func TestStaticStore(t *testing.T) {
	t.Run("complete credential", func(t *testing.T) {
		s := NewStaticStore(Credential{
			ClientID:     "cid",
			ClientSecret: "cs",
			Username:     "u",
			Password:     "p",
		})

		credential, err := s.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "cs", credential.ClientSecret)
	})

	t.Run("incomplete credential", func(t *testing.T) {
		s := NewStaticStore(Credential{ClientID: "cid"})

		_, err := s.Fetch(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeCredential))
	})
}
