package provider

import "crypto/rand"

// Creds is the primary identity credential for a session. The fields are
// opaque key material to the gateway; only Me (the paired identity) is read.
type Creds struct {
	RegistrationID uint32 `json:"registrationId"`
	NoiseKey       []byte `json:"noiseKey"`
	IdentityKey    []byte `json:"identityKey"`
	AdvSecretKey   []byte `json:"advSecretKey"`
	Me             string `json:"me,omitempty"`
}

// NewCreds synthesizes a fresh, unpaired credential. Used when a session has
// no persisted credential yet; pairing binds it to an identity.
func NewCreds() *Creds {
	return &Creds{
		RegistrationID: randomUint32()%16380 + 1,
		NoiseKey:       randomBytes(32),
		IdentityKey:    randomBytes(32),
		AdvSecretKey:   randomBytes(32),
	}
}

// Registered reports whether the credential has completed pairing.
func (c *Creds) Registered() bool { return c.Me != "" }

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

func randomUint32() uint32 {
	b := randomBytes(4)
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
