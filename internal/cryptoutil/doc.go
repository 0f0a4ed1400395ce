// Package cryptoutil signs release archives with a KMS asymmetric key and
// holds the hashing helpers the archive and manifest code share.
package cryptoutil
