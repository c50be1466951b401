package ws2mongo

import (
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuthMechanism names a store authentication mechanism.
type AuthMechanism string

const (
	// AuthMechanismDefault leaves the choice to the driver's server negotiation.
	AuthMechanismDefault     AuthMechanism = ""
	AuthMechanismScramSHA1   AuthMechanism = "SCRAM-SHA-1"
	AuthMechanismScramSHA256 AuthMechanism = "SCRAM-SHA-256"
	AuthMechanismMongoDBCR   AuthMechanism = "MONGODB-CR"
	AuthMechanismX509        AuthMechanism = "MONGODB-X509"
	AuthMechanismPlain       AuthMechanism = "PLAIN"
)

const (
	DefaultAuthSource = "admin"
	// externalAuthSource is where the driver expects principals authenticated outside the
	// database, as with certificates.
	externalAuthSource = "$external"
)

// ParseAuthMechanism maps a declared name onto a known mechanism.
func ParseAuthMechanism(name string) (AuthMechanism, error) {
	switch mech := AuthMechanism(name); mech {
	case AuthMechanismDefault,
		AuthMechanismScramSHA1,
		AuthMechanismScramSHA256,
		AuthMechanismMongoDBCR,
		AuthMechanismX509,
		AuthMechanismPlain:
		return mech, nil
	default:
		return "", ErrUnsupportedAuthMechanism{Name: name}
	}
}

// Credential is the resolved principal the store client authenticates with.
type Credential struct {
	Mechanism   AuthMechanism
	Username    string
	Password    string
	PasswordSet bool
	Source      string
}

// ResolveCredential builds the credential for cfg. It returns nil, nil when no username
// is configured. The mechanism name is checked either way.
func ResolveCredential(cfg StoreConfig) (*Credential, error) {
	mech, err := ParseAuthMechanism(cfg.AuthMechanism)
	if err != nil {
		return nil, err
	}

	if cfg.Username == "" {
		return nil, nil
	}

	source := cfg.ResolvedAuthSource()
	if mech == AuthMechanismX509 && cfg.AuthSource == "" {
		source = externalAuthSource
	}

	return &Credential{
		Mechanism:   mech,
		Username:    cfg.Username,
		Password:    cfg.Password,
		PasswordSet: cfg.Password != "",
		Source:      source,
	}, nil
}

// ClientCredential converts c into the driver's credential options.
func (c Credential) ClientCredential() options.Credential {
	return options.Credential{
		AuthMechanism: string(c.Mechanism),
		AuthSource:    c.Source,
		Username:      c.Username,
		Password:      c.Password,
		PasswordSet:   c.PasswordSet,
	}
}
