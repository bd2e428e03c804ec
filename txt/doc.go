// Package txt implements the Plain Text Reader and Writer: the simplest
// format in the pipeline, used both as a first-class target and as a
// baseline for exercising the IR's Chapter/ContentNode shape against
// something that carries no markup of its own.
package txt
