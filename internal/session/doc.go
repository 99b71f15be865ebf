// Package session は撮影セッションの進行を担う
//
// # 責務
// - カウントダウン表示と撮影の順序制御
// - 撮影枚数・表示回数などセッションごとの状態の保持
// - 効果音の再生タイミング
// - 進行状況のイベント通知
//
// # 仕様
// - Timeline: タイミング設定からセッション中の処理を時刻順に並べる純粋関数
// - Manager: 1つのgoroutineでタイムラインを順に実行する。同時に実行できるセッションは1つ
// - 状態は looplab/fsm で管理し、idle → reminding → standby → capturing → … → done の順にしか進まない
// - カウントダウン画像の非表示は必ず同じ周期の撮影より先に行われる
// - 撮影中に映像が途切れた場合はセッションを failed で終える
package session
