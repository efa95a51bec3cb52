package medcoder

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// Options control pipeline-wide retrieval and annotation behavior.
type Options struct {
	RetrievalTopK           int
	RetrievalMinSimilarity  float64
	AnnotateEvidence        bool
	AnnotationMinSimilarity float64
}

// DefaultOptions mirror the defaults of the standalone components.
func DefaultOptions() Options {
	return Options{
		RetrievalTopK:           10,
		RetrievalMinSimilarity:  0.0,
		AnnotateEvidence:        true,
		AnnotationMinSimilarity: 0.7,
	}
}

// Pipeline runs the full medical coding sequence over a clinical document:
// disease extraction, semantic code retrieval, LLM re-ranking, and evidence
// span annotation. The pipeline is stateless across documents; the only
// shared state is the immutable embedding store and model handles held by
// its components.
type Pipeline struct {
	extractor *DiseaseExtractor
	retriever *CodeRetriever
	reranker  *CodeReranker
	aligner   *EvidenceAligner
	opts      Options
	logger    *logrus.Logger
}

// NewPipeline assembles a pipeline from its stage components.
func NewPipeline(extractor *DiseaseExtractor, retriever *CodeRetriever, reranker *CodeReranker, aligner *EvidenceAligner, opts Options, logger *logrus.Logger) *Pipeline {
	if opts.RetrievalTopK <= 0 {
		opts.RetrievalTopK = 10
	}
	if opts.AnnotationMinSimilarity <= 0 {
		opts.AnnotationMinSimilarity = 0.7
	}
	return &Pipeline{
		extractor: extractor,
		retriever: retriever,
		reranker:  reranker,
		aligner:   aligner,
		opts:      opts,
		logger:    logger,
	}
}

// Process runs the pipeline over a single document. A document from which
// no diseases are extracted short-circuits to an empty result without
// invoking retrieval, re-ranking, or annotation.
func (p *Pipeline) Process(ctx context.Context, document string) *domain.CodingResult {
	totalStart := time.Now()
	result := &domain.CodingResult{Diseases: []domain.DiseaseCoding{}}

	// Stage 1: extraction.
	extractStart := time.Now()
	diseases := p.extractor.Extract(ctx, document)
	result.Timing.Extraction = time.Since(extractStart)

	p.logger.WithFields(logrus.Fields{
		"diseases": len(diseases),
		"elapsed":  result.Timing.Extraction,
	}).Info("Extraction completed")

	if len(diseases) == 0 {
		p.logger.Warn("No diseases extracted from clinical description")
		result.Timing.Total = time.Since(totalStart)
		return result
	}

	codings := make([]domain.DiseaseCoding, len(diseases))
	for i, d := range diseases {
		codings[i] = domain.DiseaseCoding{Disease: d}
	}

	// Stage 2: retrieval.
	retrieveStart := time.Now()
	for i := range codings {
		d := &codings[i]
		retrievalText := combineRetrievalText(d.Disease.Name, d.Disease.Evidence)
		retrieved, err := p.retriever.Retrieve(ctx, retrievalText, p.opts.RetrievalTopK, p.opts.RetrievalMinSimilarity)
		if err != nil {
			// Recoverable: the reranker sees no candidates and the
			// extractor's initial code still stands.
			p.logger.WithError(err).WithField("disease", d.Disease.Name).Warn("Code retrieval failed")
			continue
		}
		d.RetrievedCodes = retrieved
	}
	result.Timing.Retrieval = time.Since(retrieveStart)

	p.logger.WithFields(logrus.Fields{
		"diseases": len(codings),
		"elapsed":  result.Timing.Retrieval,
	}).Info("Retrieval completed")

	// Stage 3: re-ranking.
	rerankStart := time.Now()
	for i := range codings {
		d := &codings[i]
		d.InitialName = p.retriever.CodeName(d.Disease.InitialCode)
		d.RerankedCodes = p.reranker.Rerank(ctx, d.Disease.Name, d.Disease.Evidence,
			d.Disease.InitialCode, d.InitialName, d.RetrievedCodes)
	}
	result.Timing.Reranking = time.Since(rerankStart)

	p.logger.WithFields(logrus.Fields{
		"diseases": len(codings),
		"elapsed":  result.Timing.Reranking,
	}).Info("Re-ranking completed")

	// Stage 4: evidence annotation.
	if p.opts.AnnotateEvidence {
		annotateStart := time.Now()
		for i := range codings {
			d := &codings[i]
			d.EvidenceSpans = p.aligner.FindSpans(document, d.Disease.Evidence, p.opts.AnnotationMinSimilarity)
		}
		result.Timing.Annotation = time.Since(annotateStart)
	}

	result.Diseases = codings
	result.Timing.Total = time.Since(totalStart)

	p.logger.WithFields(logrus.Fields{
		"extraction": result.Timing.Extraction,
		"retrieval":  result.Timing.Retrieval,
		"reranking":  result.Timing.Reranking,
		"annotation": result.Timing.Annotation,
		"total":      result.Timing.Total,
	}).Info("Pipeline timing breakdown")

	return result
}

// ProcessAll runs the pipeline over each document independently, preserving
// input order.
func (p *Pipeline) ProcessAll(ctx context.Context, documents []string) []*domain.CodingResult {
	results := make([]*domain.CodingResult, 0, len(documents))
	for idx, document := range documents {
		if len(documents) > 1 {
			p.logger.WithFields(logrus.Fields{
				"document": idx + 1,
				"total":    len(documents),
			}).Info("Processing description")
		}
		results = append(results, p.Process(ctx, document))
	}
	return results
}

// ExtractOnly performs disease extraction without retrieval or re-ranking.
func (p *Pipeline) ExtractOnly(ctx context.Context, document string) []domain.Disease {
	return p.extractor.Extract(ctx, document)
}

// RetrieveOnly performs semantic retrieval without extraction or re-ranking.
func (p *Pipeline) RetrieveOnly(ctx context.Context, text string, topK int) ([]domain.RetrievedCandidate, error) {
	if topK <= 0 {
		topK = p.opts.RetrievalTopK
	}
	return p.retriever.Retrieve(ctx, text, topK, p.opts.RetrievalMinSimilarity)
}

// combineRetrievalText blends the disease name with its evidence phrases.
// Retrieval against the evidence text is far more accurate than against the
// bare disease label.
func combineRetrievalText(diseaseName string, evidence []string) string {
	evidenceText := strings.Join(evidence, "\n")
	if evidenceText == "" {
		return diseaseName
	}
	return diseaseName + "\n\n" + evidenceText
}
