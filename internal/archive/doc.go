// Package archive keeps a record of what was deployed: the manifest as a
// tarball and the generated program in S3, a release pointer in SSM, and an
// optional KMS signature over the tarball.
//
// Layout under the configured bucket:
//
//	{prefix}/{resource}/{digest}.tar.gz
//	{prefix}/{resource}/{digest}.js
//	{prefix}/{resource}/{digest}.tar.gz.sig
//
// and the SSM parameter {ssm-prefix}/{resource}/release holding the digest.
package archive
