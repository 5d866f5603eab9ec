package clustering

import (
	"fmt"
	"math"
	"reflect"

	"github.com/humilityai/hdbscan"
)

// Noise is the label for points HDBSCAN leaves outside every cluster.
const Noise = -1

// Config holds HDBSCAN clustering parameters
type Config struct {
	MinClusterSize int // Minimum number of articles to form a cluster
	MinSamples     int // Advisory; the library derives its own neighborhood size
}

// DefaultConfig returns the default clustering parameters
func DefaultConfig() Config {
	return Config{
		MinClusterSize: 5,
		MinSamples:     3,
	}
}

// Clusterer runs HDBSCAN over article embeddings
type Clusterer struct {
	MinClusterSize int
	MinSamples     int
}

// NewClusterer creates a clusterer from a config
func NewClusterer(cfg Config) *Clusterer {
	if cfg.MinClusterSize < 2 {
		cfg.MinClusterSize = DefaultConfig().MinClusterSize
	}
	return &Clusterer{
		MinClusterSize: cfg.MinClusterSize,
		MinSamples:     cfg.MinSamples,
	}
}

// Assign clusters the given vectors and returns one label per input index.
// Unclustered points get Noise. Fewer than MinClusterSize vectors all land
// in a single catch-all cluster 0.
func (c *Clusterer) Assign(vectors [][]float64) ([]int, error) {
	if len(vectors) == 0 {
		return []int{}, nil
	}

	labels := make([]int, len(vectors))
	if len(vectors) < c.MinClusterSize {
		return labels, nil
	}

	clustering, err := hdbscan.NewClustering(vectors, c.MinClusterSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create HDBSCAN clusterer: %w", err)
	}

	clustering = clustering.OutlierDetection()

	// Cosine distance, not Euclidean: high-dimensional embeddings collapse
	// under Euclidean distance.
	if err := clustering.Run(CosineDistance, hdbscan.VarianceScore, true); err != nil {
		return nil, fmt.Errorf("HDBSCAN clustering failed: %w", err)
	}

	for i := range labels {
		labels[i] = Noise
	}
	for clusterID, cluster := range extractClusterData(clustering) {
		for _, pointIdx := range cluster.Points {
			if pointIdx >= 0 && pointIdx < len(labels) {
				labels[pointIdx] = clusterID
			}
		}
	}

	return labels, nil
}

// CosineDistance computes cosine distance between two vectors:
// 1 - dot(A, B) / (||A|| * ||B||), clamped to [0, 2].
func CosineDistance(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		return 1.0 // Maximum distance for mismatched dimensions
	}

	var dotProduct, mag1, mag2 float64
	for i := range x1 {
		dotProduct += x1[i] * x2[i]
		mag1 += x1[i] * x1[i]
		mag2 += x2[i] * x2[i]
	}

	// Handle zero vectors
	if mag1 == 0 || mag2 == 0 {
		return 1.0
	}

	similarity := dotProduct / (math.Sqrt(mag1) * math.Sqrt(mag2))

	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1.0 {
		similarity = 1.0
	} else if similarity < -1.0 {
		similarity = -1.0
	}

	return 1.0 - similarity
}

// EuclideanDistance computes the L2 distance between two vectors.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}

	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}

	return math.Sqrt(sum)
}

// Centroid computes the arithmetic mean of a set of vectors.
func Centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}

	centroid := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, val := range v {
			if i < len(centroid) {
				centroid[i] += val
			}
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(vectors))
	}

	return centroid
}

// GenerateLabel creates a human-readable label for a cluster from its member
// titles: the most recurring title word, or the first title truncated.
func GenerateLabel(titles []string) string {
	if len(titles) == 0 {
		return ""
	}

	wordCounts := make(map[string]int)
	for _, title := range titles {
		for _, word := range extractWords(title) {
			if len(word) > 3 { // Filter out short words
				wordCounts[word]++
			}
		}
	}

	var mostCommonWord string
	maxCount := 0
	for word, count := range wordCounts {
		if count > maxCount || (count == maxCount && word < mostCommonWord) {
			maxCount = count
			mostCommonWord = word
		}
	}

	if mostCommonWord != "" && maxCount > 1 {
		return fmt.Sprintf("%s & Related", mostCommonWord)
	}

	// Fallback: use first title (truncated)
	first := titles[0]
	if len(first) > 40 {
		first = first[:37] + "..."
	}
	return first
}

// extractWords extracts alphabetic words from text for keyword analysis
func extractWords(text string) []string {
	words := []string{}
	word := ""

	for _, char := range text {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			word += string(char)
		} else {
			if len(word) > 0 {
				words = append(words, word)
				word = ""
			}
		}
	}

	if len(word) > 0 {
		words = append(words, word)
	}

	return words
}

// clusterData holds cluster information pulled out of the HDBSCAN result
type clusterData struct {
	Centroid []float64
	Points   []int
}

// extractClusterData uses reflection to read cluster assignments out of the
// library's Clustering struct. Its Clusters field is a slice of *cluster,
// each carrying Centroid []float64 and Points []int.
func extractClusterData(clustering *hdbscan.Clustering) []clusterData {
	v := reflect.ValueOf(clustering).Elem()
	clustersField := v.FieldByName("Clusters")

	if !clustersField.IsValid() {
		return []clusterData{}
	}

	numClusters := clustersField.Len()
	result := make([]clusterData, numClusters)

	for i := 0; i < numClusters; i++ {
		clusterPtr := clustersField.Index(i)

		if clusterPtr.Kind() == reflect.Ptr {
			clusterPtr = clusterPtr.Elem()
		}

		centroidField := clusterPtr.FieldByName("Centroid")
		if centroidField.IsValid() && centroidField.Kind() == reflect.Slice {
			centroid := make([]float64, centroidField.Len())
			for j := 0; j < centroidField.Len(); j++ {
				centroid[j] = centroidField.Index(j).Float()
			}
			result[i].Centroid = centroid
		}

		pointsField := clusterPtr.FieldByName("Points")
		if pointsField.IsValid() && pointsField.Kind() == reflect.Slice {
			points := make([]int, pointsField.Len())
			for j := 0; j < pointsField.Len(); j++ {
				points[j] = int(pointsField.Index(j).Int())
			}
			result[i].Points = points
		}
	}

	return result
}
