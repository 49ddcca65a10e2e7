/*
Package style 提供图像风格目录。

目录在进程启动时构建且此后只读，按注册顺序保存每个风格的叙述式提示词、
负面约束、风格锚点（媒介、年代、色板、质感、光线）、生成参数以及 UI
展示元数据。风格 ID 精确匹配且区分大小写，未注册 ID 返回 UNKNOWN_STYLE。

部分风格附带参考图位置（ReferencePaths），由参考图加载器在请求主后端前拉取。
*/
package style
