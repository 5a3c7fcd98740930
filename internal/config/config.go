package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete memcore configuration. It is assembled in layers:
// built-in defaults, then the user config file, then the project config
// file, then environment variable overrides (highest precedence).
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Clustering  ClusteringConfig  `yaml:"clustering" json:"clustering"`
	Traversal   TraversalConfig   `yaml:"traversal" json:"traversal"`
	Tokens      TokensConfig      `yaml:"tokens" json:"tokens"`
	Vectors     VectorsConfig     `yaml:"vectors" json:"vectors"`
	Maintenance MaintenanceConfig `yaml:"maintenance" json:"maintenance"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" json:"retrieval"`
	Decay       DecayConfig       `yaml:"decay" json:"decay"`
	Server      ServerConfig      `yaml:"server" json:"server"`
}

// PathsConfig configures where the store keeps its data on disk.
type PathsConfig struct {
	DataDir       string `yaml:"data_dir" json:"data_dir"`
	TranscriptDir string `yaml:"transcript_dir" json:"transcript_dir"`
}

// ClusteringConfig configures the HDBSCAN recluster pipeline.
type ClusteringConfig struct {
	Threshold      float64 `yaml:"threshold" json:"threshold"`
	MinClusterSize int     `yaml:"min_cluster_size" json:"min_cluster_size"`
	MinSamples     int     `yaml:"min_samples" json:"min_samples"`
	Metric         string  `yaml:"metric" json:"metric"`
	SelectionMethod string `yaml:"selection_method" json:"selection_method"`
	ApproximateKNN bool    `yaml:"approximate_knn" json:"approximate_knn"`
}

// TraversalConfig configures the weighted graph BFS.
type TraversalConfig struct {
	MaxDepth  int     `yaml:"max_depth" json:"max_depth"`
	MinWeight float64 `yaml:"min_weight" json:"min_weight"`
	MaxNodes  int     `yaml:"max_nodes" json:"max_nodes"`
}

// TokensConfig bounds response assembly sizes.
type TokensConfig struct {
	MCPMaxResponse int `yaml:"mcp_max_response" json:"mcp_max_response"`
}

// VectorsConfig configures the append-only vector store.
type VectorsConfig struct {
	TTLDays  int `yaml:"ttl_days" json:"ttl_days"`
	MaxCount int `yaml:"max_count" json:"max_count"`
	Dimensions int `yaml:"dimensions" json:"dimensions"`
}

// MaintenanceConfig configures the scheduler.
type MaintenanceConfig struct {
	ClusterHour  int `yaml:"cluster_hour" json:"cluster_hour"`
	PruneMinute  int `yaml:"prune_minute" json:"prune_minute"`
	VacuumHour   int `yaml:"vacuum_hour" json:"vacuum_hour"`
}

// RetrievalConfig configures the assemble_context pipeline.
type RetrievalConfig struct {
	MMRLambda    float64 `yaml:"mmr_lambda" json:"mmr_lambda"`
	RRFConstant  int     `yaml:"rrf_constant" json:"rrf_constant"`
	VectorTopK   int     `yaml:"vector_top_k" json:"vector_top_k"`
	KeywordTopK  int     `yaml:"keyword_top_k" json:"keyword_top_k"`
	SiblingBoost float64 `yaml:"sibling_boost" json:"sibling_boost"`
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	MaxClusters  int     `yaml:"max_clusters" json:"max_clusters"`
	MaxSiblings  int     `yaml:"max_siblings" json:"max_siblings"`
	RecencyBoost float64 `yaml:"recency_boost" json:"recency_boost"`
	MergeBoost   float64 `yaml:"merge_boost" json:"merge_boost"`
	MMRMinCandidates int `yaml:"mmr_min_candidates" json:"mmr_min_candidates"`
}

// DecayConfig configures the decay curves.
type DecayConfig struct {
	Forward          string  `yaml:"forward" json:"forward"`   // curve family for forward edges
	Backward         string  `yaml:"backward" json:"backward"` // curve family for backward edges
	ForwardDiesAtHops float64 `yaml:"forward_dies_at_hops" json:"forward_dies_at_hops"`
	BackwardDiesAtHops float64 `yaml:"backward_dies_at_hops" json:"backward_dies_at_hops"`
	ForwardHoldHops  float64 `yaml:"forward_hold_hops" json:"forward_hold_hops"`
	BackwardHoldHops float64 `yaml:"backward_hold_hops" json:"backward_hold_hops"`
	MsPerHop         int64   `yaml:"ms_per_hop" json:"ms_per_hop"`
}

// ServerConfig configures logging and the MCP-facing surface.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogPath  string `yaml:"log_path" json:"log_path"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:       filepath.Join(home, ".memcore", "data"),
			TranscriptDir: filepath.Join(home, ".memcore", "transcripts"),
		},
		Clustering: ClusteringConfig{
			Threshold:       0.35,
			MinClusterSize:  5,
			MinSamples:      5,
			Metric:          "euclidean",
			SelectionMethod: "eom",
			ApproximateKNN:  false,
		},
		Traversal: TraversalConfig{
			MaxDepth:  3,
			MinWeight: 0.05,
			MaxNodes:  200,
		},
		Tokens: TokensConfig{
			MCPMaxResponse: 8000,
		},
		Vectors: VectorsConfig{
			TTLDays:    90,
			MaxCount:   200000,
			Dimensions: 768,
		},
		Maintenance: MaintenanceConfig{
			ClusterHour: 3,
			PruneMinute: 15,
			VacuumHour:  4,
		},
		Retrieval: RetrievalConfig{
			MMRLambda:        0.7,
			RRFConstant:      60,
			VectorTopK:       20,
			KeywordTopK:      20,
			SiblingBoost:     0.3,
			VectorWeight:     1.0,
			KeywordWeight:    1.0,
			MaxClusters:      3,
			MaxSiblings:      5,
			RecencyBoost:     1.2,
			MergeBoost:       1.5,
			MMRMinCandidates: 10,
		},
		Decay: DecayConfig{
			Forward:            "exponential",
			Backward:           "linear",
			ForwardDiesAtHops:  6,
			BackwardDiesAtHops: 10,
			ForwardHoldHops:    1,
			BackwardHoldHops:   2,
			MsPerHop:           15 * 60 * 1000,
		},
		Server: ServerConfig{
			LogLevel: "info",
			LogPath:  filepath.Join(home, ".memcore", "logs", "memcore.log"),
		},
	}
}

func defaultUserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "memcore")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "memcore")
}

// GetUserConfigPath returns the path to the user-level config file.
func GetUserConfigPath() string {
	return filepath.Join(defaultUserConfigDir(), "config.yaml")
}

// GetUserConfigDir returns the directory containing the user-level config.
func GetUserConfigDir() string {
	return defaultUserConfigDir()
}

// UserConfigExists reports whether a user-level config file is present.
func UserConfigExists() bool {
	_, err := os.Stat(GetUserConfigPath())
	return err == nil
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	cfg := &Config{}
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load assembles configuration in precedence order: built-in defaults, the
// user config (~/.config/memcore/config.yaml), the project config
// (.memcore.yaml in dir), then MEMCORE_* environment overrides.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".memcore.yaml", ".memcore.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Paths.TranscriptDir != "" {
		c.Paths.TranscriptDir = other.Paths.TranscriptDir
	}

	if other.Clustering.Threshold != 0 {
		c.Clustering.Threshold = other.Clustering.Threshold
	}
	if other.Clustering.MinClusterSize != 0 {
		c.Clustering.MinClusterSize = other.Clustering.MinClusterSize
	}
	if other.Clustering.MinSamples != 0 {
		c.Clustering.MinSamples = other.Clustering.MinSamples
	}
	if other.Clustering.Metric != "" {
		c.Clustering.Metric = other.Clustering.Metric
	}
	if other.Clustering.SelectionMethod != "" {
		c.Clustering.SelectionMethod = other.Clustering.SelectionMethod
	}
	if other.Clustering.ApproximateKNN {
		c.Clustering.ApproximateKNN = true
	}

	if other.Traversal.MaxDepth != 0 {
		c.Traversal.MaxDepth = other.Traversal.MaxDepth
	}
	if other.Traversal.MinWeight != 0 {
		c.Traversal.MinWeight = other.Traversal.MinWeight
	}
	if other.Traversal.MaxNodes != 0 {
		c.Traversal.MaxNodes = other.Traversal.MaxNodes
	}

	if other.Tokens.MCPMaxResponse != 0 {
		c.Tokens.MCPMaxResponse = other.Tokens.MCPMaxResponse
	}

	if other.Vectors.TTLDays != 0 {
		c.Vectors.TTLDays = other.Vectors.TTLDays
	}
	if other.Vectors.MaxCount != 0 {
		c.Vectors.MaxCount = other.Vectors.MaxCount
	}
	if other.Vectors.Dimensions != 0 {
		c.Vectors.Dimensions = other.Vectors.Dimensions
	}

	if other.Maintenance.ClusterHour != 0 {
		c.Maintenance.ClusterHour = other.Maintenance.ClusterHour
	}
	if other.Maintenance.PruneMinute != 0 {
		c.Maintenance.PruneMinute = other.Maintenance.PruneMinute
	}
	if other.Maintenance.VacuumHour != 0 {
		c.Maintenance.VacuumHour = other.Maintenance.VacuumHour
	}

	if other.Retrieval.MMRLambda != 0 {
		c.Retrieval.MMRLambda = other.Retrieval.MMRLambda
	}
	if other.Retrieval.RRFConstant != 0 {
		c.Retrieval.RRFConstant = other.Retrieval.RRFConstant
	}
	if other.Retrieval.VectorTopK != 0 {
		c.Retrieval.VectorTopK = other.Retrieval.VectorTopK
	}
	if other.Retrieval.KeywordTopK != 0 {
		c.Retrieval.KeywordTopK = other.Retrieval.KeywordTopK
	}
	if other.Retrieval.SiblingBoost != 0 {
		c.Retrieval.SiblingBoost = other.Retrieval.SiblingBoost
	}
	if other.Retrieval.VectorWeight != 0 {
		c.Retrieval.VectorWeight = other.Retrieval.VectorWeight
	}
	if other.Retrieval.KeywordWeight != 0 {
		c.Retrieval.KeywordWeight = other.Retrieval.KeywordWeight
	}
	if other.Retrieval.MaxClusters != 0 {
		c.Retrieval.MaxClusters = other.Retrieval.MaxClusters
	}
	if other.Retrieval.MaxSiblings != 0 {
		c.Retrieval.MaxSiblings = other.Retrieval.MaxSiblings
	}
	if other.Retrieval.RecencyBoost != 0 {
		c.Retrieval.RecencyBoost = other.Retrieval.RecencyBoost
	}
	if other.Retrieval.MergeBoost != 0 {
		c.Retrieval.MergeBoost = other.Retrieval.MergeBoost
	}
	if other.Retrieval.MMRMinCandidates != 0 {
		c.Retrieval.MMRMinCandidates = other.Retrieval.MMRMinCandidates
	}

	if other.Decay.Forward != "" {
		c.Decay.Forward = other.Decay.Forward
	}
	if other.Decay.Backward != "" {
		c.Decay.Backward = other.Decay.Backward
	}
	if other.Decay.ForwardDiesAtHops != 0 {
		c.Decay.ForwardDiesAtHops = other.Decay.ForwardDiesAtHops
	}
	if other.Decay.BackwardDiesAtHops != 0 {
		c.Decay.BackwardDiesAtHops = other.Decay.BackwardDiesAtHops
	}
	if other.Decay.ForwardHoldHops != 0 {
		c.Decay.ForwardHoldHops = other.Decay.ForwardHoldHops
	}
	if other.Decay.BackwardHoldHops != 0 {
		c.Decay.BackwardHoldHops = other.Decay.BackwardHoldHops
	}
	if other.Decay.MsPerHop != 0 {
		c.Decay.MsPerHop = other.Decay.MsPerHop
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LogPath != "" {
		c.Server.LogPath = other.Server.LogPath
	}
}

// applyEnvOverrides reads MEMCORE_* environment variables, the highest
// precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMCORE_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("MEMCORE_CLUSTERING_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Clustering.Threshold = f
		}
	}
	if v := os.Getenv("MEMCORE_MIN_CLUSTER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Clustering.MinClusterSize = n
		}
	}
	if v := os.Getenv("MEMCORE_MMR_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.MMRLambda = f
		}
	}
	if v := os.Getenv("MEMCORE_MCP_MAX_RESPONSE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tokens.MCPMaxResponse = n
		}
	}
	if v := os.Getenv("MEMCORE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate checks cross-field invariants, collecting every violation rather
// than failing on the first.
func (c *Config) Validate() error {
	var problems []string

	if c.Clustering.MinClusterSize < 2 {
		problems = append(problems, fmt.Sprintf("clustering.min_cluster_size must be >= 2, got %d", c.Clustering.MinClusterSize))
	}
	validMetrics := map[string]bool{"euclidean": true, "angular": true}
	if !validMetrics[strings.ToLower(c.Clustering.Metric)] {
		problems = append(problems, fmt.Sprintf("clustering.metric must be 'euclidean' or 'angular', got %q", c.Clustering.Metric))
	}
	validSelection := map[string]bool{"eom": true, "leaf": true}
	if !validSelection[strings.ToLower(c.Clustering.SelectionMethod)] {
		problems = append(problems, fmt.Sprintf("clustering.selection_method must be 'eom' or 'leaf', got %q", c.Clustering.SelectionMethod))
	}

	if c.Traversal.MaxDepth < 0 {
		problems = append(problems, "traversal.max_depth must be non-negative")
	}
	if c.Traversal.MinWeight < 0 {
		problems = append(problems, "traversal.min_weight must be non-negative")
	}

	if c.Tokens.MCPMaxResponse <= 0 {
		problems = append(problems, "tokens.mcp_max_response must be positive")
	}

	if c.Vectors.TTLDays < 0 {
		problems = append(problems, "vectors.ttl_days must be non-negative")
	}
	if c.Vectors.Dimensions <= 0 {
		problems = append(problems, "vectors.dimensions must be positive")
	}

	if c.Retrieval.MMRLambda < 0 || c.Retrieval.MMRLambda > 1 {
		problems = append(problems, fmt.Sprintf("retrieval.mmr_lambda must be between 0 and 1, got %f", c.Retrieval.MMRLambda))
	}
	if c.Retrieval.RRFConstant <= 0 {
		problems = append(problems, "retrieval.rrf_constant must be positive")
	}
	if c.Retrieval.MaxClusters < 0 {
		problems = append(problems, "retrieval.max_clusters must be non-negative")
	}
	if c.Retrieval.MaxSiblings < 0 {
		problems = append(problems, "retrieval.max_siblings must be non-negative")
	}
	if c.Retrieval.MMRMinCandidates < 0 {
		problems = append(problems, "retrieval.mmr_min_candidates must be non-negative")
	}

	validCurves := map[string]bool{"linear": true, "exponential": true, "delayed-linear": true}
	if !validCurves[strings.ToLower(c.Decay.Forward)] {
		problems = append(problems, fmt.Sprintf("decay.forward must be a known curve family, got %q", c.Decay.Forward))
	}
	if !validCurves[strings.ToLower(c.Decay.Backward)] {
		problems = append(problems, fmt.Sprintf("decay.backward must be a known curve family, got %q", c.Decay.Backward))
	}
	if c.Decay.MsPerHop <= 0 {
		problems = append(problems, "decay.ms_per_hop must be positive")
	}
	if c.Decay.ForwardDiesAtHops <= 0 {
		problems = append(problems, "decay.forward_dies_at_hops must be positive")
	}
	if c.Decay.BackwardDiesAtHops <= 0 {
		problems = append(problems, "decay.backward_dies_at_hops must be positive")
	}
	if c.Decay.ForwardHoldHops < 0 || c.Decay.ForwardHoldHops >= c.Decay.ForwardDiesAtHops {
		problems = append(problems, "decay.forward_hold_hops must be non-negative and less than forward_dies_at_hops")
	}
	if c.Decay.BackwardHoldHops < 0 || c.Decay.BackwardHoldHops >= c.Decay.BackwardDiesAtHops {
		problems = append(problems, "decay.backward_hold_hops must be non-negative and less than backward_dies_at_hops")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		problems = append(problems, fmt.Sprintf("server.log_level must be debug/info/warn/error, got %q", c.Server.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// WriteYAML serializes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user-level configuration file, returning a nil
// config (and nil error) if it does not exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
