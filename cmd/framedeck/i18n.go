// Package main provides localization for the framedeck CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Root command
		"Random access to video frames with asynchronous decode and caching.": "非同期デコードとキャッシュによる動画フレームへのランダムアクセス。",

		// Subcommands
		"Show stream information for a media source.": "メディアソースのストリーム情報を表示。",
		"Extract a single frame as an image.":         "1フレームを画像として抽出。",
		"Render a filmstrip contact sheet.":           "フィルムストリップのコンタクトシートを生成。",
		"Export a frame range as numbered images.":    "フレーム範囲を連番画像として書き出し。",
		"Extract an audio span as a WAV file.":        "音声区間をWAVファイルとして抽出。",
		"Show version information.":                   "バージョン情報を表示。",

		// Arguments
		"Media file or synth: descriptor.": "メディアファイルまたはsynth:記述子。",

		// Shared flags
		"Path to YAML configuration file.":                                     "YAML設定ファイルのパス。",
		"Cache preset (auto, scrub-4k, balanced, playback, thumbnail).":        "キャッシュプリセット（auto, scrub-4k, balanced, playback, thumbnail）。",
		"Frames per cache batch.":                                              "キャッシュバッチあたりのフレーム数。",
		"Edge distance that triggers neighbor preload.":                        "隣接バッチの先読みを開始する端からの距離。",
		"Maximum batches held in memory.":                                      "メモリに保持する最大バッチ数。",
		"Eviction distance from the last access in frames.":                    "最終アクセス位置からの破棄距離（フレーム数）。",
		"Timeout waiting for an in-flight batch in milliseconds.":              "読み込み中バッチの待機タイムアウト（ミリ秒）。",
		"Memory budget for cached frames in megabytes.":                        "キャッシュフレームのメモリ上限（メガバイト）。",
		"Path to ffmpeg executable (falls back to PATH, then common locations).": "ffmpeg実行ファイルのパス（未指定時はPATHと既知の場所を探索）。",
		"Path to ffprobe executable.":                                          "ffprobe実行ファイルのパス。",
		"Log level (debug, info, warn, error)":                                 "ログレベル（debug, info, warn, error）",
		"Suppress all log output.":                                             "全てのログ出力を抑制。",

		// Frame flags
		"Output image path (.png or .jpg).":  "出力画像パス（.pngまたは.jpg）。",
		"Frame number to extract.":           "抽出するフレーム番号。",
		"Timestamp to extract in milliseconds.": "抽出するタイムスタンプ（ミリ秒）。",
		"Resize output to this width.":       "出力をこの幅にリサイズ。",

		// Strip flags
		"Number of frames in the sheet.":  "シートに並べるフレーム数。",
		"Tiles per row.":                  "1行あたりのタイル数。",
		"Width of each tile in pixels.":   "各タイルの幅（ピクセル）。",

		// Export flags
		"Output directory.":                        "出力ディレクトリ。",
		"First frame to export.":                   "書き出す最初のフレーム。",
		"Last frame to export (default: end of stream).": "書き出す最後のフレーム（デフォルト: ストリーム末尾）。",

		// Audio flags
		"Output WAV path.":               "出力WAVパス。",
		"Span start in milliseconds.":    "区間の開始位置（ミリ秒）。",
		"Span length in milliseconds.":   "区間の長さ（ミリ秒）。",

		// Probe output
		"Source: %s":           "ソース: %s",
		"Resolution: %dx%d":    "解像度: %dx%d",
		"Frame rate: %.3f fps": "フレームレート: %.3f fps",
		"Frames: %d":           "フレーム数: %d",
		"Duration: %s":         "再生時間: %s",
		"Audio: %d Hz, %d channels": "音声: %d Hz, %dチャンネル",
		"Audio: none":          "音声: なし",
		"Cache preset: %s":     "キャッシュプリセット: %s",

		// Runtime messages
		"Saved frame %d to %s":           "フレーム %d を %s に保存しました",
		"Saved filmstrip of %d frames to %s": "%d フレームのフィルムストリップを %s に保存しました",
		"Exported %d frames to %s":       "%d フレームを %s に書き出しました",
		"Saved %d audio samples to %s":   "%d 音声サンプルを %s に保存しました",
		"Interrupted, shutting down...":  "中断されました。シャットダウン中...",
		"framedeck version %s":           "framedeck (Go版) バージョン %s",

		// Error messages
		"exactly one of --index or --at is required":   "--index と --at のどちらか一方を指定してください",
		"at least 2 frames are required for a filmstrip": "フィルムストリップには2フレーム以上が必要です",
		"source too short for a filmstrip":             "ソースが短すぎてフィルムストリップを作成できません",
	})
}
