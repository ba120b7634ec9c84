// Package identity provides functionality for generating identifiers and
// secrets within a mesh. This includes object identification, such as for
// Networks, Nodes and Certificates, but also the secrets handed to devices:
// enrollment codes and device tokens.
//
// Random Identifiers
//
// Identifiers provided by this package are cryptographically-strong, random
// 128 bit numbers encoded in Base36. This method is preferred over UUID4 since
// it requires less storage and leverages the full 128 bits of entropy.
//
// Secrets
//
// Enrollment codes are short enough to be typed and are only ever valid for a
// limited time. Device tokens are long-lived bearer credentials. Neither is
// stored in the clear by the manager.
package identity
