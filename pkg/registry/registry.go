package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"hstream/pkg/contract"
	"hstream/pkg/mapred"
	grep "hstream/plugins/mapper/grep"
	wc "hstream/plugins/mapper/wordcount"
	rfs "hstream/plugins/reader/filesystem"
	rcount "hstream/plugins/reducer/count"
	rsum "hstream/plugins/reducer/sum"
	wfs "hstream/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: options: %v", contract.ErrInvalidInput, err)
	}
	return nil
}

// NewMapper 工厂签名：接收原样 JSON Options。
type NewMapper func(raw json.RawMessage) (mapred.Mapper, error)

// NewReducer 工厂签名：接收原样 JSON Options。
type NewReducer func(raw json.RawMessage) (mapred.Reducer, error)

// NewSource 工厂签名：接收原样 JSON Options。
type NewSource func(raw json.RawMessage) (contract.Source, error)

// NewSink 工厂签名：接收原样 JSON Options。
type NewSink func(raw json.RawMessage) (contract.Sink, error)

// Mapper 工厂注册表（显式、零反射）。
var Mapper = map[string]NewMapper{
	// identity: <offset><delim><line>
	"identity": func(raw json.RawMessage) (mapred.Mapper, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mapred.IdentityMapper(), nil
	},
	"wordcount": func(raw json.RawMessage) (mapred.Mapper, error) {
		var opts wc.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wc.New(&opts), nil
	},
	"grep": func(raw json.RawMessage) (mapred.Mapper, error) {
		var opts grep.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return grep.New(&opts)
	},
}

// Reducer 工厂注册表。
var Reducer = map[string]NewReducer{
	// identity: 每个值原样输出 <key><delim><value>
	"identity": func(raw json.RawMessage) (mapred.Reducer, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mapred.IdentityReducer(), nil
	},
	"sum": func(raw json.RawMessage) (mapred.Reducer, error) {
		var opts rsum.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rsum.New(&opts), nil
	},
	"count": func(raw json.RawMessage) (mapred.Reducer, error) {
		var opts rcount.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rcount.New(&opts), nil
	},
}

// Source 工厂注册表（本地运行器输入）。
var Source = map[string]NewSource{
	// fs: 文件/目录/STDIN
	"fs": func(raw json.RawMessage) (contract.Source, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts)
	},
}

// Sink 工厂注册表（本地运行器输出）。
var Sink = map[string]NewSink{
	// fs: 文件系统（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Sink, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// BuildMapper 按名称构造 Mapper；未注册时返回 ErrUnknownStrategy。
func BuildMapper(name string, raw json.RawMessage) (mapred.Mapper, error) {
	f, ok := Mapper[name]
	if !ok {
		return nil, fmt.Errorf("%w: mapper %q (known: %v)", contract.ErrUnknownStrategy, name, Names(Mapper))
	}
	return f(raw)
}

// BuildReducer 按名称构造 Reducer；未注册时返回 ErrUnknownStrategy。
func BuildReducer(name string, raw json.RawMessage) (mapred.Reducer, error) {
	f, ok := Reducer[name]
	if !ok {
		return nil, fmt.Errorf("%w: reducer %q (known: %v)", contract.ErrUnknownStrategy, name, Names(Reducer))
	}
	return f(raw)
}

// Names 返回注册表中的名称（字典序）。
func Names[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
