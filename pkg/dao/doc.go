/*
Package dao resolves the current cluster membership: the set of peer
base URLs the synchronizer should pull history from. Client is the seam
between the core and the external registry (spec.md §1 places the real
on-chain lookup out of scope); StaticClient serves a fixed list for
single-box deployments and tests, ContractClient reads a JSON peer list
from an HTTP endpoint shaped like DCL_API_URL rather than talking to a
chain RPC directly.
*/
package dao
