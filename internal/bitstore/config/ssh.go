package config

import (
	"errors"
	"os"
	"time"

	internalConfig "github.com/jdillenkofer/fixity/internal/config"
	"golang.org/x/crypto/ssh"
)

var ErrNoAuthMethod = errors.New("sshClientConfig needs a password or a privateKeyPath")
var ErrNoHostKey = errors.New("sshClientConfig needs a hostKey or insecureIgnoreHostKey")

// SshClientConfigConfiguration is the flat json form of an ssh.ClientConfig.
type SshClientConfigConfiguration struct {
	User                  internalConfig.StringProvider   `json:"user"`
	Password              *internalConfig.StringProvider  `json:"password,omitempty"`
	PrivateKeyPath        *internalConfig.StringProvider  `json:"privateKeyPath,omitempty"`
	Passphrase            *internalConfig.StringProvider  `json:"passphrase,omitempty"`
	HostKey               *internalConfig.StringProvider  `json:"hostKey,omitempty"`
	InsecureIgnoreHostKey bool                            `json:"insecureIgnoreHostKey,omitempty"`
	HostKeyAlgorithms     []internalConfig.StringProvider `json:"hostKeyAlgorithms,omitempty"`
	ConnectionTimeout     internalConfig.Duration         `json:"connectionTimeout,omitempty"`
}

func (s *SshClientConfigConfiguration) signer() (ssh.Signer, error) {
	pemBytes, err := os.ReadFile(s.PrivateKeyPath.Value())
	if err != nil {
		return nil, err
	}
	if s.Passphrase != nil && s.Passphrase.Value() != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(s.Passphrase.Value()))
	}
	return ssh.ParsePrivateKey(pemBytes)
}

func (s *SshClientConfigConfiguration) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.HostKey != nil && s.HostKey.Value() != "" {
		hostKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(s.HostKey.Value()))
		if err != nil {
			return nil, err
		}
		return ssh.FixedHostKey(hostKey), nil
	}
	if s.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return nil, ErrNoHostKey
}

func (s *SshClientConfigConfiguration) Instantiate() (*ssh.ClientConfig, error) {
	authMethods := []ssh.AuthMethod{}
	if s.PrivateKeyPath != nil && s.PrivateKeyPath.Value() != "" {
		signer, err := s.signer()
		if err != nil {
			return nil, err
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if s.Password != nil && s.Password.Value() != "" {
		authMethods = append(authMethods, ssh.Password(s.Password.Value()))
	}
	if len(authMethods) == 0 {
		return nil, ErrNoAuthMethod
	}
	hostKeyCallback, err := s.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	hostKeyAlgorithms := []string{}
	for _, h := range s.HostKeyAlgorithms {
		hostKeyAlgorithms = append(hostKeyAlgorithms, h.Value())
	}
	return &ssh.ClientConfig{
		User:              s.User.Value(),
		Auth:              authMethods,
		HostKeyCallback:   hostKeyCallback,
		HostKeyAlgorithms: hostKeyAlgorithms,
		Timeout:           time.Duration(s.ConnectionTimeout),
	}, nil
}
