package medcoder

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// DefaultEncoderModel is the sentence-transformer used for both the offline
// embedding generation and online query encoding. Query vectors must come
// from the same model as the stored matrix.
const DefaultEncoderModel = "sentence-transformers/all-MiniLM-L6-v2"

// HugotEncoder embeds text with a local ONNX sentence-transformer pipeline.
// The session and pipeline are created lazily on first use and reused for
// every subsequent call.
type HugotEncoder struct {
	modelName string
	modelDir  string
	dims      int
	logger    *logrus.Logger

	once     sync.Once
	initErr  error
	session  *hugot.Session
	pipeline featureExtractor
}

type featureExtractor interface {
	RunPipeline(inputs []string) (*pipelines.FeatureExtractionOutput, error)
}

// NewHugotEncoder creates an encoder for modelName, storing downloaded
// models under modelDir. The underlying pipeline is not created until the
// first Encode call.
func NewHugotEncoder(modelName, modelDir string, dims int, logger *logrus.Logger) *HugotEncoder {
	if modelName == "" {
		modelName = DefaultEncoderModel
	}
	if modelDir == "" {
		modelDir = "./models"
	}
	return &HugotEncoder{
		modelName: modelName,
		modelDir:  modelDir,
		dims:      dims,
		logger:    logger,
	}
}

// Dims returns the embedding dimensionality.
func (e *HugotEncoder) Dims() int {
	return e.dims
}

// Encode returns the unit-normalized embedding of text.
func (e *HugotEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.once.Do(e.initialize)
	if e.initErr != nil {
		return nil, e.initErr
	}

	result, err := e.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("encoding text: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("encoder produced no embedding")
	}
	return normalizeVector(result.Embeddings[0]), nil
}

// Close releases the ONNX session.
func (e *HugotEncoder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

func (e *HugotEncoder) initialize() {
	e.logger.WithField("model", e.modelName).Info("Loading sentence encoder")

	modelPath, err := e.prepareModel()
	if err != nil {
		e.initErr = err
		return
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		e.initErr = fmt.Errorf("creating hugot session: %w", err)
		return
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "icd10-query-encoder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			e.initErr = fmt.Errorf("creating encoder pipeline: %w (cleanup error: %v)", err, destroyErr)
			return
		}
		e.initErr = fmt.Errorf("creating encoder pipeline: %w", err)
		return
	}

	e.session = session
	e.pipeline = pipeline
	e.logger.WithField("model", e.modelName).Info("Sentence encoder ready")
}

// prepareModel downloads the model on first use and returns its local path.
func (e *HugotEncoder) prepareModel() (string, error) {
	localName := strings.ReplaceAll(e.modelName, "/", "_")
	modelPath := filepath.Join(e.modelDir, localName)

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := os.MkdirAll(e.modelDir, 0755); err != nil {
			return "", fmt.Errorf("creating model directory: %w", err)
		}
		downloadOptions := hugot.NewDownloadOptions()
		downloadOptions.OnnxFilePath = "onnx/model.onnx"
		downloadedPath, err := hugot.DownloadModel(e.modelName, e.modelDir, downloadOptions)
		if err != nil {
			return "", fmt.Errorf("downloading model %s: %w", e.modelName, err)
		}
		modelPath = downloadedPath
	}
	return modelPath, nil
}

func normalizeVector(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

var _ domain.Encoder = (*HugotEncoder)(nil)
