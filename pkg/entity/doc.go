// Package entity defines the immutable Entity descriptor and the factory
// that parses and shape-validates one from the bytes of an uploaded
// entity.json file.
package entity
