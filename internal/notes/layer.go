package notes

// 地图上笔记点的数据源与图层 ID；要素 id 即笔记 ID，要素状态 dim 以此为键
const (
	SourceID            = "notes"
	ClustersLayerID     = "clusters"
	ClusterCountLayerID = "cluster-count"
	PointLayerID        = "unclustered-point"
)
