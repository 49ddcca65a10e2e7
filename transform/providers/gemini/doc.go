/*
Package gemini 实现基于 Google Gemini 图像模型（"nano-banana"）的主转换后端。

源图与参考图以 inlineData 形式内联发送，参考图在前、源图在后、文本提示词最后。
Prepare 负责内联远程源图与加载参考图，只在重试循环之前执行一次。
响应被归类为 API 错误、无候选、无图像、图像四种结果之一。

Edit 复用同一个 generateContent 调用，只发送源图与自由编辑指令。
*/
package gemini
