// Package provision drives the edge platform through the steps that make a
// generated program reachable at https://<subdomain>.<base-domain>, and the
// single step that takes it down again.
//
// Deploy runs, strictly in order:
//
//	dns     ensure a proxied AAAA placeholder record exists for the host
//	upload  upload the program under the site's resource name
//	route   bind <host>/* to the resource ("already exists" is satisfied)
//	purge   purge the zone cache; failures are recorded, never fatal
//
// Every step is idempotent, so a failed deploy is fixed by running it again.
// Teardown deletes only the program. The DNS record and route stay behind
// and are reused by the next deploy of the same name.
package provision
