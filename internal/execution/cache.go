package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"

	resolver "github.com/hanpama/entityql/internal/resolver"
	lru "github.com/hashicorp/golang-lru/v2"
)

// resultCache keeps recent results keyed by request and block. Cached
// results are shared between callers and must not be modified.
type resultCache struct {
	entries *lru.Cache[string, *resolver.Result]
}

func newResultCache(size int) *resultCache {
	entries, err := lru.New[string, *resolver.Result](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &resultCache{entries: entries}
}

func (c *resultCache) get(key string) (*resolver.Result, bool) { return c.entries.Get(key) }
func (c *resultCache) add(key string, res *resolver.Result)    { c.entries.Add(key, res) }

// cacheKey identifies a request at a block. encoding/json sorts map keys, so
// equal variables always encode the same way.
func cacheKey(p *prepared) (string, error) {
	if p.req.Query == "" {
		return "", errors.New("request has no query text")
	}
	vars, err := json.Marshal(p.req.Variables)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, part := range [][]byte{
		[]byte(p.req.Query),
		[]byte(p.op.Name),
		vars,
		[]byte(strconv.FormatInt(int64(p.block), 10)),
	} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
