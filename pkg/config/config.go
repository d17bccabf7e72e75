package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the server's environment-driven configuration (§6 of the
// content server specification).
type Config struct {
	StorageRootFolder string
	ServerPort        int

	SyncInterval time.Duration

	RequestTTLBackwards time.Duration
	RequestTTLForwards  time.Duration

	// ImmutableTimeDelay is Δ_imm (spec.md §3/§4.3): the fixed bound past
	// which a history event's timestamp is declared final.
	ImmutableTimeDelay time.Duration

	// MaxUploadSizePerType maps an entity type to its per-pointer megabyte cap.
	MaxUploadSizePerType map[string]int

	AllowLegacyEntities bool

	EthNetwork          string
	DCLAPIURL           string
	ENSOwnerProviderURL string
	DAOAddress          string
}

// Load reads configuration from the process environment, applying the same
// defaults the original content server ships with. Every variable can be
// overridden by setting the corresponding environment variable.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("storage_root_folder", "./storage")
	v.SetDefault("server_port", 6969)
	v.SetDefault("sync_with_servers_interval", "5s")
	v.SetDefault("request_ttl_backwards", "10m")
	v.SetDefault("request_ttl_forwards", "5m")
	v.SetDefault("immutable_time_delay", "10m")
	v.SetDefault("max_upload_size_per_type", "scene:100,profile:50,wearable:50,store:20")
	v.SetDefault("allow_legacy_entities", false)
	v.SetDefault("eth_network", "mainnet")

	syncInterval, err := time.ParseDuration(v.GetString("sync_with_servers_interval"))
	if err != nil {
		return nil, err
	}
	ttlBack, err := time.ParseDuration(v.GetString("request_ttl_backwards"))
	if err != nil {
		return nil, err
	}
	ttlFwd, err := time.ParseDuration(v.GetString("request_ttl_forwards"))
	if err != nil {
		return nil, err
	}
	immutableDelay, err := time.ParseDuration(v.GetString("immutable_time_delay"))
	if err != nil {
		return nil, err
	}

	return &Config{
		StorageRootFolder:    v.GetString("storage_root_folder"),
		ServerPort:           v.GetInt("server_port"),
		SyncInterval:         syncInterval,
		RequestTTLBackwards:  ttlBack,
		RequestTTLForwards:   ttlFwd,
		ImmutableTimeDelay:   immutableDelay,
		MaxUploadSizePerType: parseSizeMap(v.GetString("max_upload_size_per_type")),
		AllowLegacyEntities:  v.GetBool("allow_legacy_entities"),
		EthNetwork:           v.GetString("eth_network"),
		DCLAPIURL:            v.GetString("dcl_api_url"),
		ENSOwnerProviderURL:  v.GetString("ens_owner_provider_url"),
		DAOAddress:           v.GetString("dao_address"),
	}, nil
}

// parseSizeMap parses "type:mb,type:mb" into a map. Malformed entries are
// skipped rather than rejected, since a bad entry for an unused type should
// not block startup.
func parseSizeMap(raw string) map[string]int {
	out := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		mb, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(parts[0])] = mb
	}
	return out
}
