// The config package encapsulates configuration for all vzfs commands
// (vzfs, vzfsd, vzfsmount, vzfsnfs, vzfsmcp).
//
// All vzfs components are expected to store filesystem databases and
// any runtime information within a dedicated base directory. When
// loading the configuration, the first and only argument is the path
// to the base directory rather than the path to the configuration
// file. The designated directory is expected to contain an HCL file
// called "config.hcl" that corresponds to the C struct of this
// package. Paths such as the data directory are derived from the base
// directory and exposed as methods of C.
package config
