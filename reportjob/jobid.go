package reportjob

import "github.com/google/uuid"

// NewJobID 生成抗碰撞的任务ID。
// 说明：JobStore.Create 对重复ID直接报错，ID 的唯一性由调用方负责，这里
// 提供 UUIDv4 作为默认方案。
func NewJobID() string { return uuid.NewString() }
