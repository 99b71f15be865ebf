// Package server は、フォトブースのHTTPサーバーとWebSocket通信を管理します。
//
// 責務:
//   - カメラ映像フィードの開始・停止・ミュート・一時停止
//   - 撮影セッションの開始・中断と状態の取得
//   - 撮影済み写真とカウントダウン画像の配信
//   - MJPEGによるプレビュー映像の配信
//   - WebSocketによるセッションイベントの配信
//   - 埋め込みUI（HTML/JS）の配信
//
// 仕様:
//   - ルーティングはgin、WebSocketはgorilla/websocketを使用
//   - エラーは ErrorResponse として種類ごとのステータスコードで返す
//   - グレースフルシャットダウン時は撮影中のセッションを中断しカメラを解放する
package server
