package usecase

// HeldSessionLocks は保持中のセッションロック数
func (u *CartUsecase) HeldSessionLocks() int {
	return u.locks.held()
}
