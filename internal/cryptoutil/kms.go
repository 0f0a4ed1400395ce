package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/hex"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// kmsAPI is the subset of the KMS client the signer needs, so tests can
// run without AWS credentials.
type kmsAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// Signature is a detached signature over a message digest.
type Signature struct {
	KeyARN    string `json:"key_arn"`
	Algorithm string `json:"algorithm"`
	// Digest is the hex digest that was signed
	Digest string `json:"digest"`
	Value  []byte `json:"signature"`
}

type KMSSigner struct {
	client kmsAPI
	keyARN string

	mu     sync.Mutex
	pubKey crypto.PublicKey
}

func NewKMSSigner(client *kms.Client, keyARN string) *KMSSigner {
	return &KMSSigner{client: client, keyARN: keyARN}
}

// PublicKey fetches and caches the key, refusing keys not meant for signing.
func (s *KMSSigner) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubKey != nil {
		return s.pubKey, nil
	}
	if s.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := s.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(s.keyARN)})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms get public key")
	}
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has KeyUsage=%s, expected SIGN_VERIFY", s.keyARN, out.KeyUsage)
	}
	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key DER")
	}
	s.pubKey = pub
	return pub, nil
}

// Sign hashes message locally and has KMS sign the digest. The key type
// picks the scheme: P-256 ECDSA/SHA-256, P-384 ECDSA/SHA-384, RSA PSS/SHA-256.
func (s *KMSSigner) Sign(ctx context.Context, message []byte) (Signature, error) {
	pub, err := s.PublicKey(ctx)
	if err != nil {
		return Signature{}, err
	}
	alg, digest, err := signingScheme(pub, message)
	if err != nil {
		return Signature{}, err
	}

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyARN),
		Message:          digest,
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: alg,
	})
	if err != nil {
		return Signature{}, xerrors.Wrapf(err, "kms sign with %s", s.keyARN)
	}
	if len(out.Signature) == 0 {
		return Signature{}, xerrors.New("kms returned an empty signature")
	}
	return Signature{
		KeyARN:    s.keyARN,
		Algorithm: string(alg),
		Digest:    hex.EncodeToString(digest),
		Value:     out.Signature,
	}, nil
}

func signingScheme(pub crypto.PublicKey, message []byte) (kmstypes.SigningAlgorithmSpec, []byte, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		switch key.Curve {
		case elliptic.P256():
			d := sha256.Sum256(message)
			return kmstypes.SigningAlgorithmSpecEcdsaSha256, d[:], nil
		case elliptic.P384():
			d := sha512.Sum384(message)
			return kmstypes.SigningAlgorithmSpecEcdsaSha384, d[:], nil
		default:
			return "", nil, xerrors.Newf("unsupported ECDSA curve: %v", key.Curve.Params().Name)
		}
	case *rsa.PublicKey:
		d := sha256.Sum256(message)
		return kmstypes.SigningAlgorithmSpecRsassaPssSha256, d[:], nil
	default:
		return "", nil, xerrors.Newf("unsupported public key type: %T", pub)
	}
}
