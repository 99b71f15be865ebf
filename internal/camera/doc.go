// Package camera 撮影ブースのライブ映像フィードを担う
//
// # 責務
// - カメラデバイスの検出
// - 映像フィードの開始・停止（同時に1つだけ）
// - ミュート（黒画面）と一時停止（静止画）の切り替え
// - 撮影用に現在のフレームを提供
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - V4L2デバイスから映像を取り込みたい
// - カメラがない環境でテストパターンを使いたい
//
// # 仕様
// - Feed: フィードのライフサイクル管理。取得はcontextでキャンセルでき、タイムアウトを持つ
// - Source: 映像の供給元（USBカメラ、テストパターン）。音声は扱わない
// - SourceFactory: ソースタイプからSourceを作成
// - Discovery: v4l2-ctl でデバイスを列挙し、物理カメラごとのメインカメラを判定
//   デバイスが auto（または空）の場合、Feed は取得時に最初のメインカメラを使う
// - DeviceMonitor: 定期スキャンによるデバイス一覧の保持と抜き差しの記録
// - V4L2 Capturer: ffmpeg経由での画像キャプチャ
//
// # 前提要件
//   - v4l-utils: デバイスの列挙とカメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
