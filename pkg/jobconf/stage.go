package jobconf

import "fmt"

// Stage: map 或 reduce。
type Stage int

const (
	StageMap Stage = iota
	StageReduce
)

func (s Stage) String() string {
	if s == StageMap {
		return "map"
	}
	return "reduce"
}

// ParseStage 解析 "map"/"reduce"。
func ParseStage(s string) (Stage, error) {
	switch s {
	case "map":
		return StageMap, nil
	case "reduce":
		return StageReduce, nil
	default:
		return StageReduce, fmt.Errorf("unknown stage %q", s)
	}
}
