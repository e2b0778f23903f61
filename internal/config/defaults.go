package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
			DataDir:  "~/.quantia",
		},
		OpenAI: OpenAIConfig{
			APIKey:         "",
			APIBase:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4o",
			EmbedModel:     "text-embedding-3-small",
			Dimension:      1536,
			TimeoutSeconds: 120,
		},
		Index: IndexConfig{
			Dir:       "~/.quantia/index",
			ChunkSize: 1000,
			Overlap:   200,
			TopK:      5,
		},
		Memory: MemoryConfig{
			DBPath:       "~/.quantia/memory.db",
			HistoryTurns: 5,
		},
		Graph: GraphConfig{
			Enabled:  false,
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			MaxHops:  2,
		},
	}
}
