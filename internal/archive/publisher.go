package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/edgesite/internal/cryptoutil"
	"github.com/keithlinneman/edgesite/internal/log"
	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

const (
	bundleType    = "application/gzip"
	programType   = "application/javascript"
	signatureType = "application/json"
)

type objectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type parameterStore interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// Signer produces a detached signature. *cryptoutil.KMSSigner satisfies it.
type Signer interface {
	Sign(ctx context.Context, message []byte) (cryptoutil.Signature, error)
}

type Options struct {
	Logger log.Logger

	// S3 location: s3://{Bucket}/{Prefix}/{resource}/...
	Bucket string
	Prefix string

	// SSM parameter path prefix, must start with "/"
	SSMPrefix string

	// KMS key for the tarball signature; empty disables signing
	SigningKeyARN string

	// AWS config (uses default if nil)
	AWSConfig *aws.Config
}

type Publisher struct {
	opts   Options
	s3     objectStore
	ssm    parameterStore
	signer Signer
	logger log.Logger
}

// Release describes one published deployment record.
type Release struct {
	ResourceName string `json:"resource_name"`
	// Digest is the manifest digest, not the tarball hash
	Digest       string `json:"digest"`
	BundleSHA256 string `json:"bundle_sha256"`
	BundleKey    string `json:"bundle_key"`
	ProgramKey   string `json:"program_key"`
	SignatureKey string `json:"signature_key,omitempty"`
	Parameter    string `json:"parameter"`
}

func New(ctx context.Context, opts Options) (*Publisher, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("archive bucket is required")
	}
	if !strings.HasPrefix(opts.SSMPrefix, "/") {
		return nil, xerrors.Newf("archive SSM prefix %q must start with /", opts.SSMPrefix)
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	var awsCfg aws.Config
	var err error
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}

	p := &Publisher{
		opts:   opts,
		s3:     s3.NewFromConfig(awsCfg),
		ssm:    ssm.NewFromConfig(awsCfg),
		logger: opts.Logger,
	}
	if opts.SigningKeyARN != "" {
		p.signer = cryptoutil.NewKMSSigner(kms.NewFromConfig(awsCfg), opts.SigningKeyARN)
	}
	return p, nil
}

func (p *Publisher) objectKey(resource, name string) string {
	prefix := strings.Trim(p.opts.Prefix, "/")
	if prefix == "" {
		return path.Join(resource, name)
	}
	return path.Join(prefix, resource, name)
}

func (p *Publisher) parameterName(resource string) string {
	return strings.TrimRight(p.opts.SSMPrefix, "/") + "/" + resource + "/release"
}

// Publish uploads the tarball and program, signs the tarball when a signer
// is configured, and only then moves the release pointer.
func (p *Publisher) Publish(ctx context.Context, resource string, m *manifest.Manifest, program []byte) (*Release, error) {
	if resource == "" {
		return nil, xerrors.New("resource name is required")
	}
	bundle, err := Bundle(m)
	if err != nil {
		return nil, err
	}

	digest := m.Digest()
	rel := &Release{
		ResourceName: resource,
		Digest:       digest,
		BundleSHA256: cryptoutil.SHA256Hex(bundle),
		BundleKey:    p.objectKey(resource, digest+".tar.gz"),
		ProgramKey:   p.objectKey(resource, digest+".js"),
		Parameter:    p.parameterName(resource),
	}
	meta := map[string]string{
		"manifest-digest": digest,
		"bundle-sha256":   rel.BundleSHA256,
	}

	if err := p.put(ctx, rel.BundleKey, bundleType, bundle, meta); err != nil {
		return nil, err
	}
	if err := p.put(ctx, rel.ProgramKey, programType, program, meta); err != nil {
		return nil, err
	}

	if p.signer != nil {
		sig, err := p.signer.Sign(ctx, bundle)
		if err != nil {
			return nil, xerrors.Wrap(err, "sign release bundle")
		}
		raw, err := json.Marshal(sig)
		if err != nil {
			return nil, xerrors.Wrap(err, "encode signature")
		}
		rel.SignatureKey = p.objectKey(resource, digest+".tar.gz.sig")
		if err := p.put(ctx, rel.SignatureKey, signatureType, raw, meta); err != nil {
			return nil, err
		}
	}

	_, err = p.ssm.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(rel.Parameter),
		Value:     aws.String(digest),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "put SSM parameter %s", rel.Parameter)
	}

	p.logger.Info(ctx, "published release archive",
		"bucket", p.opts.Bucket,
		"bundle_key", rel.BundleKey,
		"digest", digest,
		"signed", rel.SignatureKey != "",
	)
	return rel, nil
}

func (p *Publisher) put(ctx context.Context, key, contentType string, body []byte, meta map[string]string) error {
	_, err := p.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		Metadata:      meta,
	})
	if err != nil {
		return xerrors.Wrapf(err, "put S3 object s3://%s/%s", p.opts.Bucket, key)
	}
	return nil
}
