package hdbscan

// Fit clusters points according to cfg, returning per-point labels,
// membership probabilities, outlier scores, and a Model usable with
// Predict. Boundary cases: an empty set returns an empty, zero-cluster
// Result; a single point is always noise.
func Fit(points [][]float32, cfg Config) (*Result, error) {
	n := len(points)
	if n == 0 {
		return &Result{Labels: []int{}, Probabilities: []float64{}, OutlierScores: []float64{}}, nil
	}
	if n == 1 {
		return &Result{
			Labels:        []int{NoiseLabel},
			Probabilities: []float64{0},
			OutlierScores: []float64{1},
			NumClusters:   0,
			NoiseCount:    1,
		}, nil
	}

	minSamples := cfg.minSamples()
	core, err := coreDistances(points, minSamples, cfg)
	if err != nil {
		return nil, err
	}

	metric := cfg.distanceFunc()
	edges, err := buildMST(points, core, metric)
	if err != nil {
		return nil, err
	}

	minClusterSize := cfg.MinClusterSize
	if minClusterSize < 2 {
		minClusterSize = 2
	}
	tree := buildCondensedTree(n, edges, minClusterSize)

	method := cfg.ClusterSelectionMethod
	if method == "" {
		method = SelectionEOM
	}
	selected := selectClusters(tree.roots, method)

	labels := labelPoints(n, tree.roots)
	probs, outliers := probabilitiesAndOutliers(n, tree.roots, tree.pointLeaveLambda, labels)

	noiseCount := 0
	for _, l := range labels {
		if l == NoiseLabel {
			noiseCount++
		}
	}

	model := buildModel(cfg, points, core, selected)

	return &Result{
		Labels:        labels,
		Probabilities: probs,
		OutlierScores: outliers,
		NumClusters:   len(selected),
		NoiseCount:    noiseCount,
		Model:         model,
	}, nil
}
