package mapengine

import "fmt"

// Guard：执行一次能力调用，panic 转为 error
func Guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", op, r)
		}
	}()
	if e := fn(); e != nil {
		return fmt.Errorf("%s: %w", op, e)
	}
	return nil
}
