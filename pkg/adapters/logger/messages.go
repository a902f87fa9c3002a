package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Facade
		"Opening %s":                           "%s を開いています",
		"Opened %s: %dx%d %.2f fps, %d frames": "%s を開きました: %dx%d %.2f fps, %d フレーム",
		"Selected %s preset":                   "%s プリセットを選択しました",
		"Media released":                       "メディアを解放しました",

		// Decode queue
		"Decode worker started":              "デコードワーカーを開始しました",
		"Decode worker stopped":              "デコードワーカーを停止しました",
		"Executing task %d (%s)":             "タスク %d (%s) を実行中",
		"Task %d cancelled before execution": "タスク %d は実行前にキャンセルされました",
		"Task %d failed: %s":                 "タスク %d が失敗しました: %s",
		"Cancelling %d pending tasks":        "%d 件の待機タスクをキャンセル中",

		// Frame cache
		"Loading batch %d (frames %d-%d)":    "バッチ %d (フレーム %d-%d) を読み込み中",
		"Batch %d populated with %d frames":  "バッチ %d に %d フレームを格納しました",
		"Preloading batch %d":                "バッチ %d を先読み中",
		"Evicted batch %d (distance %d)":     "バッチ %d を破棄しました (距離 %d)",
		"Evicted batch %d (cache full)":      "バッチ %d を破棄しました (キャッシュ上限)",
		"Cache cleared (%d batches dropped)": "キャッシュをクリアしました (%d バッチを破棄)",

		// Session adapters
		"Using ffmpeg at %s":               "%s の ffmpeg を使用します",
		"Using ffprobe at %s":              "%s の ffprobe を使用します",
		"Decoder process started at %d ms": "デコーダープロセスを %d ms から開始しました",
		"Decoding via %s backend":          "%s バックエンドでデコードします",

		// Warnings
		"Batch %d load failed: %s":    "バッチ %d の読み込みに失敗しました: %s",
		"Wait for batch %d timed out": "バッチ %d の待機がタイムアウトしました",
		"No frame count in container, estimating from duration": "コンテナにフレーム数がないため、再生時間から推定します",
		"Motion-JPEG session failed, falling back to ffmpeg: %s": "Motion-JPEGセッションに失敗したため、ffmpegにフォールバックします: %s",
	})
}
