package jobconf

import (
	"os"
	"strings"
	"unicode"
)

// IsMapKey: Hadoop 注入的阶段标识键（"true" 表示 map 阶段）。
const IsMapKey = "mapreduce.task.ismap"

// Configuration: Hadoop 作业配置的只读视图。
// Hadoop Streaming 以环境变量形式下发 jobconf，键中的 '.' 被替换为 '_'；
// 这里统一按替换后的键存取，调用方可直接使用带点的原始键。
type Configuration struct {
	inner map[string]string
}

// New 从当前进程环境构造 Configuration。
func New() *Configuration { return FromEnviron(os.Environ()) }

// FromEnviron 从 "k=v" 列表构造 Configuration。
// 含大写字母的键跳过（Hadoop 下发的 jobconf 键均为小写）。
func FromEnviron(environ []string) *Configuration {
	c := &Configuration{inner: make(map[string]string, len(environ))}
	for _, kv := range environ {
		eq := strings.IndexByte(kv, '=')
		if eq <= 0 {
			continue
		}
		key := kv[:eq]
		if hasUpper(key) {
			continue
		}
		c.Insert(key, kv[eq+1:])
	}
	return c
}

// FromMap 以给定键值构造 Configuration（测试与本地运行使用）。
func FromMap(m map[string]string) *Configuration {
	c := &Configuration{inner: make(map[string]string, len(m))}
	for k, v := range m {
		c.Insert(k, v)
	}
	return c
}

// Get 读取配置值；键中的 '.' 按 '_' 查询。
func (c *Configuration) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.inner[normalize(key)]
	return v, ok
}

// Insert 写入配置值（键同样归一化）。
func (c *Configuration) Insert(key, val string) {
	c.inner[normalize(key)] = val
}

// Clone 返回独立副本。
func (c *Configuration) Clone() *Configuration {
	cp := &Configuration{inner: make(map[string]string, c.Len())}
	if c != nil {
		for k, v := range c.inner {
			cp.inner[k] = v
		}
	}
	return cp
}

// Len 返回条目数。
func (c *Configuration) Len() int {
	if c == nil {
		return 0
	}
	return len(c.inner)
}

// IsMap 判断当前是否为 map 阶段。
func (c *Configuration) IsMap() bool {
	v, ok := c.Get(IsMapKey)
	return ok && v == "true"
}

// Stage 返回当前阶段。
func (c *Configuration) Stage() Stage {
	if c.IsMap() {
		return StageMap
	}
	return StageReduce
}

func normalize(key string) string {
	if strings.Contains(key, ".") {
		return strings.ReplaceAll(key, ".", "_")
	}
	return key
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
