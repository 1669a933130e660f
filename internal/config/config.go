package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"studybuddy/internal/models"
)

// LLMConfig describes one embedding backend. Provider is "openai" (any
// OpenAI-compatible endpoint, e.g. OpenRouter) or "ollama" or "local".
type LLMConfig struct {
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	Key        string `yaml:"key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

type ChromemConfig struct {
	Path          string `yaml:"path"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
	Debug       bool   `yaml:"debug"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"` // chromem | postgres
	Chromem  ChromemConfig  `yaml:"chromem"`
	Database DatabaseConfig `yaml:"database"`
}

type RegistryConfig struct {
	Backend string `yaml:"backend"` // sqlite | postgres
	Path    string `yaml:"path"`    // sqlite data directory
}

type RAGConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Strategy     string `yaml:"strategy"` // fixed | paragraph
	MinParagraph int    `yaml:"min_paragraph"`
}

// CollectionRetrieval tunes k and score thresholds per collection.
type CollectionRetrieval struct {
	TopK      int     `yaml:"top_k"`
	MinScore  float32 `yaml:"min_score"`
	HighScore float32 `yaml:"high_score"`
	MeanScore float32 `yaml:"mean_score"`
}

type Config struct {
	Store      StoreConfig                    `yaml:"store"`
	Registry   RegistryConfig                 `yaml:"registry"`
	TextEmbed  LLMConfig                      `yaml:"text_embedding"`
	ImageEmbed LLMConfig                      `yaml:"image_embedding"`
	RAG        RAGConfig                      `yaml:"rag"`
	Retrieval  map[string]CollectionRetrieval `yaml:"retrieval"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// TopKFor returns the configured result count for a collection, falling back
// to the global default for collections without tuning.
func (c *Config) TopKFor(collection string) int {
	if t, ok := c.Retrieval[collection]; ok && t.TopK > 0 {
		return t.TopK
	}
	return models.DefaultTopK
}

// applyEnv lets secrets come from the environment instead of the yaml file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Store.Database.SupabaseURL = v
	}
	if v := os.Getenv("SUPABASE_KEY"); v != "" {
		c.Store.Database.SupabaseKey = v
	}
	if v := os.Getenv("OPENROUTER_KEY"); v != "" {
		if c.TextEmbed.Key == "" {
			c.TextEmbed.Key = v
		}
		if c.ImageEmbed.Key == "" {
			c.ImageEmbed.Key = v
		}
	}
	if v := os.Getenv("CHROMEM_ENCRYPTION_KEY"); v != "" {
		c.Store.Chromem.EncryptionKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = "chromem"
	}
	if c.Store.Chromem.Path == "" {
		c.Store.Chromem.Path = "./chromemdb"
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = "sqlite"
	}
	if c.Registry.Path == "" {
		c.Registry.Path = "./data"
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = models.DefaultChunkSize
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = models.DefaultChunkOverlap
	}
	if c.RAG.Strategy == "" {
		c.RAG.Strategy = "fixed"
	}
	if c.RAG.MinParagraph == 0 {
		c.RAG.MinParagraph = models.DefaultMinParagraph
	}
	if c.Retrieval == nil {
		c.Retrieval = map[string]CollectionRetrieval{}
	}
	if _, ok := c.Retrieval[models.TextCollection]; !ok {
		c.Retrieval[models.TextCollection] = CollectionRetrieval{
			TopK:      models.DefaultTopK,
			MinScore:  models.DefaultMinScore,
			HighScore: models.DefaultHighScore,
			MeanScore: models.DefaultMeanScore,
		}
	}
	if _, ok := c.Retrieval[models.ImageCollection]; !ok {
		// broader recall for image descriptions, see configs/config.yaml
		c.Retrieval[models.ImageCollection] = CollectionRetrieval{
			TopK:      models.DefaultTopK,
			MinScore:  models.DefaultImageMinScore,
			HighScore: models.DefaultHighScore,
			MeanScore: models.DefaultMeanScore,
		}
	}
}
