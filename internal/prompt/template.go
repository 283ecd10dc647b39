package prompt

// DefaultMemoryTable is the deterministic per-conversation memory table
// used whenever an actor has no table of its own. The refresher and the
// update prompt both re-emit this exact markdown.
const DefaultMemoryTable = `# 背景设定

（这里记录本段对话的长期背景信息）

# 📋 记忆表格

## 【现在】

| 地点 | 人物 | 时间 |
| --- | --- | --- |
|  |  |  |

## 【重要物品】

| 物品名称 | 物品描述 | 重要原因 |
| --- | --- | --- |
|  |  |  |`

// wallClockLayout is the wall-clock format shown to the model.
const wallClockLayout = "2006年01月02日 15:04"
