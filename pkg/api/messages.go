// Package api 定义 hgimport.v1.ImportService 的消息与服务描述
// 消息是普通的 Go 结构体，通过注册的 CBOR codec 编码
package api

// 哈希与节点在消息中都是 40 位十六进制字符串

type ImportManifestRequest struct {
	Revision string `cbor:"rev"`
}

type ImportManifestResponse struct {
	RootTree string `cbor:"root"`
	Strategy string `cbor:"strategy"`
	Stats    Stats  `cbor:"stats"`
}

// Stats 对应 importer.Stats
type Stats struct {
	PackHits      int   `cbor:"pack_hits"`
	RemoteFetches int   `cbor:"remote_fetches"`
	CacheHits     int   `cbor:"cache_hits"`
	TreesWritten  int   `cbor:"trees_written"`
	TreesExisting int   `cbor:"trees_existing"`
	Files         int   `cbor:"files"`
	DurationMs    int64 `cbor:"duration_ms"`
}

type ImportTreeRequest struct {
	Hash string `cbor:"hash"`
}

type TreeEntry struct {
	Name string `cbor:"name"`
	Mode uint32 `cbor:"mode"`
	Hash string `cbor:"hash"`
}

type ImportTreeResponse struct {
	Hash    string      `cbor:"hash"`
	Entries []TreeEntry `cbor:"entries"`
}

type ImportFileContentsRequest struct {
	Hash string `cbor:"hash"`
}

type ImportFileContentsResponse struct {
	Data []byte `cbor:"data"`
}

type ResolveManifestNodeRequest struct {
	Revision string `cbor:"rev"`
}

type ResolveManifestNodeResponse struct {
	Node string `cbor:"node"`
}
