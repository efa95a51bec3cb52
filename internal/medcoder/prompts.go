package medcoder

// System and user prompt templates for the extraction and re-ranking LLM
// calls, together with the JSON schemas used for structured output.

const extractionSystemPrompt = `You are a medical coding assistant that extracts diseases and supporting evidence from clinical descriptions.

CRITICAL: For 'supporting_evidence', you MUST extract EXACT verbatim text spans from the input text. Do NOT paraphrase, reword, or summarize. Copy the text exactly as it appears in the clinical description.

Example:
Input: 'Patient has chest pain and shortness of breath.'
Correct evidence: ['chest pain', 'shortness of breath']
WRONG evidence: ['Patient presents with chest discomfort', 'difficulty breathing']

Provide accurate ICD-10 codes for each identified disease.`

const rerankingSystemPrompt = `You are a medical coding expert that re-ranks retrieved ICD-10 codes.

Consider these factors (in order of importance):
1. Clinical accuracy: does the code accurately represent the diagnosed disease?
2. Evidence alignment: does the code match the supporting clinical evidence?
3. Specificity: prefer more specific codes over general ones when appropriate.
4. Retrieval confidence: consider the embedding similarity scores (higher = more relevant).
5. Initial prediction consistency: how well does the code align with the initial prediction?

Return ONLY JSON that matches the provided schema, ordered from most to least appropriate.`

// extractionSchema is the structured-output schema for disease extraction.
func extractionSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"diseases": map[string]interface{}{
				"type":        "array",
				"description": "The diseases or conditions that the patient likely has.",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"disease": map[string]interface{}{
							"type":        "string",
							"description": "The likely disease or condition based on the diagnostic description.",
						},
						"supporting_evidence": map[string]interface{}{
							"type":        "array",
							"description": "Exact verbatim text spans from the clinical description that support the disease.",
							"items": map[string]interface{}{
								"type": "string",
							},
						},
						"icd10": map[string]interface{}{
							"type":        "string",
							"description": "The ICD-10 code that corresponds to the disease.",
						},
					},
					"required":             []string{"disease", "supporting_evidence", "icd10"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"diseases"},
		"additionalProperties": false,
	}
}

// rerankingSchema is the structured-output schema for code re-ranking.
func rerankingSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"reranked_codes": map[string]interface{}{
				"type":        "array",
				"description": "The re-ranked ICD-10 codes, ordered from most to least appropriate.",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"code": map[string]interface{}{
							"type":        "string",
							"description": "The ICD-10 code.",
						},
						"name": map[string]interface{}{
							"type":        "string",
							"description": "The human-readable name corresponding to the ICD-10 code.",
						},
					},
					"required":             []string{"code", "name"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"reranked_codes"},
		"additionalProperties": false,
	}
}
