// Package config loads the server's environment configuration via viper,
// mirroring the enumerated STORAGE_ROOT_FOLDER / SERVER_PORT / ... variables
// described for the content server.
package config
