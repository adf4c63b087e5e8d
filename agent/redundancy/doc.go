// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 redundancy 判断上一张截图是否可以被当前截图取代。

判定分三级，越往后代价越高：

  - 像素完全相同：直接丢弃，不调用模型
  - 重叠区域内相同像素数不超过阈值：两张图差异很大，保留
  - 其余情况交给视觉模型，回复中 fenced JSON 的
    previous_screenshot_contains_important_information_not_present_in_current_screenshot
    为 false 时丢弃

Detector 不修改轨迹，只返回结论，由调用方决定是否标记冗余。
*/
package redundancy
