package shutdown

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"testing"

	"github.com/jdekker/pibackup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// Mock implementations
type mockSSHSession struct {
	combinedOutputFunc func(cmd string) ([]byte, error)
}

func (m *mockSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	if m.combinedOutputFunc != nil {
		return m.combinedOutputFunc(cmd)
	}
	return []byte(""), nil
}

func (m *mockSSHSession) Close() error { return nil }

type mockSSHClient struct {
	newSessionFunc func() (SSHSession, error)
}

func (m *mockSSHClient) NewSession() (SSHSession, error) {
	if m.newSessionFunc != nil {
		return m.newSessionFunc()
	}
	return &mockSSHSession{}, nil
}

func (m *mockSSHClient) Close() error { return nil }

type mockClientFactory struct {
	newClientFunc func(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

func (m *mockClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	if m.newClientFunc != nil {
		return m.newClientFunc(network, addr, config)
	}
	return &mockSSHClient{}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// generateTestKey generates a valid ed25519 key in OpenSSH format.
func generateTestKey(t *testing.T) []byte {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	require.NoError(t, err)

	return pem.EncodeToMemory(pemBlock)
}

func testConfig(t *testing.T) models.ShutdownConfig {
	return models.ShutdownConfig{
		Host:       "10.0.0.2",
		Port:       22,
		Username:   "root",
		PrivateKey: generateTestKey(t),
		Delay:      1,
	}
}

func TestShutdown_Success(t *testing.T) {
	var capturedCommand string

	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			assert.Equal(t, "10.0.0.2:22", addr)
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(cmd string) ([]byte, error) {
							capturedCommand = cmd
							return []byte("Shutdown scheduled"), nil
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "Shutdown scheduled")
	assert.Nil(t, result.Error)
	assert.Equal(t, "sudo shutdown -h +1", capturedCommand)
}

func TestShutdown_ImmediateWhenNoDelay(t *testing.T) {
	var capturedCommand string

	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(cmd string) ([]byte, error) {
							capturedCommand = cmd
							return nil, nil
						},
					}, nil
				},
			}, nil
		},
	}

	cfg := testConfig(t)
	cfg.Delay = 0

	svc := NewWithClientFactory(testLogger(), factory)
	_, err := svc.Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, "sudo shutdown -h now", capturedCommand)
}

func TestShutdown_ConnectFailure(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.False(t, result.CommandRun)
}

func TestShutdown_CommandErrorTolerated(t *testing.T) {
	// The connection dropping mid-command is expected when the target
	// goes down; the result still counts as a run command.
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(cmd string) ([]byte, error) {
							return []byte("connection closed"), io.EOF
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Nil(t, result.Error)
}

func TestShutdown_MissingKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.PrivateKey = nil
	cfg.KeyPath = ""

	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})
	result, err := svc.Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "no private key")
}

func TestShutdown_InvalidKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.PrivateKey = []byte("not a key")

	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})
	result, err := svc.Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	require.Error(t, result.Error)
}
