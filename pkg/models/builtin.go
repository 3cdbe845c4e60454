package models

var builtin = []Capabilities{
	{
		ID:            "deepseek-ai/DeepSeek-V3.2",
		Name:          "DeepSeek-V3.2",
		Provider:      "siliconflow",
		Strength:      "code generation, text analysis, file processing",
		Context:       "128K",
		Note:          "well suited to programming and technical documents",
		MaxTokens:     32768,
		DocumentChars: 30000,
	},
	{
		ID:        "deepseek-ai/DeepSeek-OCR",
		Name:      "DeepSeek-OCR",
		Provider:  "siliconflow",
		Strength:  "text recognition in images, visual document processing",
		Context:   "128K",
		Note:      "extracts and analyzes text from images",
		MaxTokens: 32768,
		Vision:    true,
	},
	{
		ID:        "Qwen/Qwen3-VL-32B-Instruct",
		Name:      "Qwen3-VL-32B",
		Provider:  "siliconflow",
		Strength:  "multimodal reasoning, visual understanding, analysis",
		Context:   "32K",
		Note:      "strong combined visual and text analysis",
		MaxTokens: 32768,
		Vision:    true,
	},
	{
		ID:        "Qwen/Qwen2.5-VL-72B-Instruct",
		Name:      "Qwen2.5-VL-72B",
		Provider:  "siliconflow",
		Strength:  "vision language model",
		Context:   "8K",
		Note:      "image understanding and text analysis",
		MaxTokens: 8192,
		Vision:    true,
	},
	{
		ID:       "Qwen/Qwen2.5-72B-Instruct",
		Name:     "Qwen2.5-72B",
		Provider: "siliconflow",
		Strength: "text-only language model",
		Context:  "32K",
		Note:     "general conversation and code generation",
	},
	{
		ID:            "deepseek-chat",
		Name:          "DeepSeek Chat",
		Provider:      "deepseek",
		Strength:      "general conversation, code generation",
		Context:       "128K",
		MaxTokens:     8192,
		DocumentChars: 30000,
	},
	{
		ID:            "deepseek-reasoner",
		Name:          "DeepSeek Reasoner",
		Provider:      "deepseek",
		Strength:      "multi-step reasoning, mathematics",
		Context:       "128K",
		MaxTokens:     32768,
		DocumentChars: 30000,
	},
	{
		ID:        "glm-4.6v",
		Name:      "GLM-4.6V",
		Provider:  "glm",
		Strength:  "multimodal understanding, visual reasoning",
		Context:   "128K",
		MaxTokens: 16384,
		Vision:    true,
	},
	{
		ID:        "glm-4-flash",
		Name:      "GLM-4-Flash",
		Provider:  "glm",
		Strength:  "fast general conversation",
		Context:   "128K",
		MaxTokens: 4095,
	},
}
