package conversation

import "testing"

func TestSanitizeReply(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "Готово, задача #3 закрыта.",
			want: "Готово, задача #3 закрыта.",
		},
		{
			name: "thinking tags dropped",
			in:   "<think>owner wants the list</think>Вот твои задачи.",
			want: "Вот твои задачи.",
		},
		{
			name: "multiline thinking dropped",
			in:   "<thinking>\nстоит ли создавать задачу\n</thinking>\nСоздал задачу #5.",
			want: "Создал задачу #5.",
		},
		{
			name: "tool markup stripped",
			in:   "<tool_call>{\"name\":\"list_tasks\"}</tool_call>Задач нет.",
			want: "{\"name\":\"list_tasks\"}Задач нет.",
		},
		{
			name: "doubled answer collapsed",
			in:   "Напомню завтра в 10.\n\nНапомню завтра в 10.",
			want: "Напомню завтра в 10.",
		},
		{
			name: "whitespace trimmed",
			in:   "\n\n  Ответ.  ",
			want: "Ответ.",
		},
		{
			name: "case insensitive tags",
			in:   "<THINK>hidden</THINK>Ответ.",
			want: "Ответ.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeReply(tc.in); got != tc.want {
				t.Errorf("sanitizeReply(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCollapseDuplicateBlocksKeepsDistinct(t *testing.T) {
	in := "Первый абзац.\n\nВторой абзац.\n\nВторой абзац.\n\nТретий."
	want := "Первый абзац.\n\nВторой абзац.\n\nТретий."
	if got := collapseDuplicateBlocks(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
