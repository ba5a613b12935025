// Package model loads the offline-fitted collaborators of the pipeline:
// the standard-scaler Normalizer and the logistic window Classifier.
//
// Both are read once at startup from YAML parameter files and are
// read-only afterwards, so a single instance may be shared between goroutines.
//
//   normalizer.yaml              classifier.yaml
//   fields: [pitch, roll, ...]   fields: [pitch, roll, ...]
//   mean:   [..]                 window: 1000
//   scale:  [..]                 bias: -2.1
//                                weights: {pitch: .., roll: ..}
//                                trend_weights: {altitude: ..}
package model
